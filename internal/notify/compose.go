// Package notify builds the messages sent to notifiable user groups when an
// outbreak is declared, an alert is raised or an outbreak nears its end.
package notify

import (
	"fmt"
	"strings"

	"github.com/matthewbaird/outbreak/internal/types"
)

// Compose renders the message for rec. The detection and reporting org units
// are both targeted; an unresolved reporting unit is left out.
func Compose(rec types.Record, groups []types.Ref, kind types.MessageKind, today types.Date) types.Message {
	var subject, text string
	switch kind {
	case types.MessageEpidemic:
		subject = fmt.Sprintf("%s outbreak in %s", rec.Disease, rec.OrgUnitName)
		text = fmt.Sprintf("Dear all, epidemic threshold for %s is reached at %s of %s on %s",
			rec.Disease, rec.OrgUnitName, rec.ReportingOrgUnitName, today)
	case types.MessageAlert:
		subject = fmt.Sprintf("%s alert", rec.Disease)
		text = fmt.Sprintf("Dear all, Alert threshold for %s is reached at %s of %s on %s",
			rec.Disease, rec.OrgUnitName, rec.ReportingOrgUnitName, today)
	default:
		subject = fmt.Sprintf("%s reminder", rec.Disease)
		text = fmt.Sprintf("Dear all, %s outbreak at %s of %s is closing in 7 days",
			rec.Disease, rec.OrgUnitName, rec.ReportingOrgUnitName)
	}

	var ous []types.Ref
	for _, id := range []string{rec.OrgUnit, rec.ReportingOrgUnit} {
		if id != "" {
			ous = append(ous, types.Ref{ID: id})
		}
	}
	users := groups
	if users == nil {
		users = []types.Ref{}
	}
	return types.Message{
		Subject:           subject,
		Text:              text,
		UserGroups:        users,
		OrganisationUnits: ous,
	}
}

// ComposeAll renders one message per record.
func ComposeAll(records []types.Record, groups []types.Ref, kind types.MessageKind, today types.Date) []types.Message {
	out := make([]types.Message, 0, len(records))
	for _, rec := range records {
		out = append(out, Compose(rec, groups, kind, today))
	}
	return out
}

// Batch wraps messages in the messageConversations body.
func Batch(msgs []types.Message) types.MessageBatch {
	if msgs == nil {
		msgs = []types.Message{}
	}
	return types.MessageBatch{MessageConversations: msgs}
}

// Unique drops messages repeating an earlier subject, text and org-unit
// target list. Order is preserved.
func Unique(msgs []types.Message) []types.Message {
	seen := make(map[string]bool, len(msgs))
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		var b strings.Builder
		b.WriteString(m.Subject)
		b.WriteByte(0)
		b.WriteString(m.Text)
		for _, ou := range m.OrganisationUnits {
			b.WriteByte(0)
			b.WriteString(ou.ID)
		}
		if seen[b.String()] {
			continue
		}
		seen[b.String()] = true
		out = append(out, m)
	}
	return out
}
