package types

// ProgramStage is the reporting program stage and its data elements.
type ProgramStage struct {
	ID           string `json:"id"`
	DataElements []Ref  `json:"dataElements"`
}

// ReportingProgram receives the outbreak events.
type ReportingProgram struct {
	ID           string       `json:"id"`
	ProgramStage ProgramStage `json:"programStage"`
}

// DataElementID resolves a semantic data element name to its id.
func (p ReportingProgram) DataElementID(name string) (string, bool) {
	for _, de := range p.ProgramStage.DataElements {
		if de.Name == name {
			return de.ID, true
		}
	}
	return "", false
}

// NotificationProgram holds the tracker program the case line list comes
// from, along with its tracked entity attribute ids.
type NotificationProgram struct {
	ID                       string `json:"id"`
	DateOfOnset              Ref    `json:"dateOfOnSet"`
	Disease                  Ref    `json:"disease"`
	PatientStatusOutcome     Ref    `json:"patientStatusOutcome"`
	RegPatientStatusOutcome  Ref    `json:"regPatientStatusOutcome"`
	CaseClassification       Ref    `json:"caseClassification"`
	TestResult               Ref    `json:"testResult"`
	TestResultClassification Ref    `json:"testResultClassification"`
}

// ProgramConfig is the program/mapping configuration of the catalogue.
type ProgramConfig struct {
	ReportingProgram    ReportingProgram    `json:"reportingProgram"`
	NotificationProgram NotificationProgram `json:"notificationProgram"`
	MPeriods            FlexInt             `json:"mPeriods"`
	NPeriods            FlexInt             `json:"nPeriods"`
}

// Catalogue is the disease list plus program configuration read at the start
// of a run.
type Catalogue struct {
	Diseases []DiseaseMetadata `json:"diseases"`
	Config   ProgramConfig     `json:"config"`
}
