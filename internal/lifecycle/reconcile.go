package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/period"
	"github.com/matthewbaird/outbreak/internal/types"
)

// Mode selects which collection is being reconciled.
type Mode int

const (
	// ModeEpidemic reconciles the outbreak collection: codes are tracked per
	// lineage, the status machine runs and event ids are issued.
	ModeEpidemic Mode = iota
	// ModeAlert reconciles the alert collection.
	ModeAlert
)

func (m Mode) String() string {
	if m == ModeAlert {
		return "alert"
	}
	return "epidemic"
}

// StoredBy is written on every event the engine creates.
const StoredBy = "idsr"

// IDIssuer allocates externally issued event identifiers.
type IDIssuer interface {
	Issue(ctx context.Context, n int) ([]string, error)
}

// Result is the partitioned output of Reconcile. Merged holds Existing,
// Updated and New in that order.
type Result struct {
	Merged   []types.Record
	New      []types.Record
	Updated  []types.Record
	Existing []types.Record
	// Transitions counts records whose status changed this run.
	Transitions int
}

// Reconciler merges detections with persisted state.
type Reconciler struct {
	codes   CodeGenerator
	ids     IDIssuer
	program types.ReportingProgram
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCodes overrides the outbreak code generator.
func WithCodes(c CodeGenerator) Option { return func(r *Reconciler) { r.codes = c } }

// WithIDs sets the event id issuer. Without one, new records get no event id.
func WithIDs(ids IDIssuer) Option { return func(r *Reconciler) { r.ids = ids } }

// WithProgram sets the reporting program stamped on new outbreak records.
func WithProgram(p types.ReportingProgram) Option { return func(r *Reconciler) { r.program = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Reconciler) { r.logger = l } }

// WithClock overrides the clock used for "today".
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// NewReconciler creates a Reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		codes:  RandomCodes{},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Today returns the reconciler's current date.
func (r *Reconciler) Today() types.Date { return types.DateOf(r.now()) }

type side int

const (
	leftOnly side = iota
	rightOnly
	both
)

type joined struct {
	src   side
	left  types.Record
	right types.Record
}

// outerJoin pairs persisted (left) and detected (right) records on
// (orgUnit, disease, period). Order follows left, then unmatched right rows.
// Duplicate keys on the right are folded into their first occurrence.
func outerJoin(left, right []types.Record) []joined {
	idx := make(map[types.Key]int, len(right))
	var rights []types.Record
	for _, r := range right {
		if i, ok := idx[r.Key()]; ok {
			rights[i].Counts = MergeCounts(rights[i].Counts, r.Counts)
			continue
		}
		idx[r.Key()] = len(rights)
		rights = append(rights, r)
	}
	matched := make([]bool, len(rights))
	out := make([]joined, 0, len(left)+len(rights))
	for _, l := range left {
		if i, ok := idx[l.Key()]; ok {
			matched[i] = true
			out = append(out, joined{src: both, left: l, right: rights[i]})
			continue
		}
		out = append(out, joined{src: leftOnly, left: l})
	}
	for i, r := range rights {
		if !matched[i] {
			out = append(out, joined{src: rightOnly, right: r})
		}
	}
	return out
}

// Reconcile merges detected rows into the persisted collection.
//
// With nothing persisted every detection is new; with nothing detected the
// persisted rows pass through untouched. Otherwise rows present on one side
// only are new or existing, and rows on both sides are updates whose counts
// follow MergeCounts.
//
// In ModeEpidemic a new row reuses the outbreak code of an open persisted
// record of the same (disease, orgUnit) lineage, the status machine is
// applied to new and updated rows, and an event id is requested for each new
// row. Id issuance failures are logged and the rows proceed without ids.
func (r *Reconciler) Reconcile(ctx context.Context, persisted, detected []types.Record, mode Mode) Result {
	today := r.Today()
	var res Result

	if len(detected) == 0 {
		res.Existing = append(res.Existing, persisted...)
		for i := range res.Existing {
			res.Existing[i].Updated = false
			res.Existing[i].Epitype = types.EpitypeOld
		}
		res.Merged = append(res.Merged, res.Existing...)
		return res
	}

	keyed := make([]types.Record, len(persisted))
	for i, p := range persisted {
		if p.Period == "" && !p.FirstCaseDate.IsZero() {
			p.Period = string(period.Of(p.FirstCaseDate.Time))
		}
		keyed[i] = p
	}

	for _, j := range outerJoin(keyed, detected) {
		switch j.src {
		case leftOnly:
			rec := j.left
			rec.Updated = false
			rec.Epitype = types.EpitypeOld
			res.Existing = append(res.Existing, rec)
		case both:
			rec := mergeRecord(j.left, j.right)
			if mode == ModeEpidemic && r.evaluate(&rec, today) {
				res.Transitions++
			}
			rec.Updated = true
			rec.Epitype = types.EpitypeOld
			res.Updated = append(res.Updated, rec)
		case rightOnly:
			rec := j.right
			if mode == ModeEpidemic && r.evaluate(&rec, today) {
				res.Transitions++
			}
			rec.Updated = true
			rec.Epitype = types.EpitypeNew
			res.New = append(res.New, rec)
		}
	}

	if mode == ModeEpidemic {
		r.assignCodes(res.New, keyed)
		r.stampNew(ctx, res.New)
	} else {
		for i := range res.New {
			res.New[i].Type = types.RecordAlert
		}
	}

	res.Merged = make([]types.Record, 0, len(res.Existing)+len(res.Updated)+len(res.New))
	res.Merged = append(res.Merged, res.Existing...)
	res.Merged = append(res.Merged, res.Updated...)
	res.Merged = append(res.Merged, res.New...)

	r.logger.Debug("reconciled",
		zap.Stringer("mode", mode),
		zap.Int("new", len(res.New)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("existing", len(res.Existing)),
		zap.Int("transitions", res.Transitions),
	)
	return res
}

// evaluate runs the status machine on a new or updated row.
func (r *Reconciler) evaluate(rec *types.Record, today types.Date) bool {
	refreshSchedule(rec, today)
	return ApplyStatus(rec, today)
}

// assignCodes gives every new record its lineage's outbreak code. An open
// persisted record of the same lineage wins; otherwise rows of one lineage
// minted in this call share a code. A draft code from the detector is kept
// when the lineage is genuinely new.
func (r *Reconciler) assignCodes(fresh, persisted []types.Record) {
	open := map[types.Lineage]string{}
	for _, p := range persisted {
		if p.Epicode == "" || !p.Open() {
			continue
		}
		if _, ok := open[p.Lineage()]; !ok {
			open[p.Lineage()] = p.Epicode
		}
	}
	minted := map[types.Lineage]string{}
	for i := range fresh {
		lin := fresh[i].Lineage()
		if code, ok := open[lin]; ok {
			fresh[i].Epicode = code
			continue
		}
		if code, ok := minted[lin]; ok {
			fresh[i].Epicode = code
			continue
		}
		if fresh[i].Epicode == "" {
			fresh[i].Epicode = r.codes.Generate(fresh[i].OrgUnitCode)
		}
		minted[lin] = fresh[i].Epicode
	}
}

// stampNew fills the event envelope fields of new outbreak records and
// requests one event id per record.
func (r *Reconciler) stampNew(ctx context.Context, fresh []types.Record) {
	if len(fresh) == 0 {
		return
	}
	for i := range fresh {
		fresh[i].Type = types.RecordEpidemic
		fresh[i].EventDate = fresh[i].FirstCaseDate
		fresh[i].Program = r.program.ID
		fresh[i].ProgramStage = r.program.ProgramStage.ID
		fresh[i].StoredBy = StoredBy
	}
	if r.ids == nil {
		return
	}
	ids, err := r.ids.Issue(ctx, len(fresh))
	if err != nil {
		r.logger.Warn("failed to issue event ids", zap.Int("requested", len(fresh)), zap.Error(err))
		return
	}
	if len(ids) < len(fresh) {
		r.logger.Warn("event id issuance returned fewer ids than requested",
			zap.Int("requested", len(fresh)), zap.Int("issued", len(ids)))
	}
	for i := range fresh {
		if i < len(ids) {
			fresh[i].Event = ids[i]
		}
	}
}
