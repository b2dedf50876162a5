package model

// Severity of an emitted record.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Related is a secondary location attached to a record (one stack frame).
type Related struct {
	File    string `json:"file" msgpack:"file"`
	Line    int    `json:"line" msgpack:"line"`
	Message string `json:"message" msgpack:"message"`
}

// Record is one positioned diagnostic as handed to the presentation layer.
type Record struct {
	Line        int       `json:"line" msgpack:"line"`
	Message     string    `json:"message" msgpack:"message"`
	Type        string    `json:"type" msgpack:"type"`
	Kind        string    `json:"kind" msgpack:"kind"`
	Label       string    `json:"label,omitempty" msgpack:"label,omitempty"`
	Severity    Severity  `json:"severity" msgpack:"severity"`
	DocURL      string    `json:"doc_url" msgpack:"doc_url"`
	LeakedBytes int64     `json:"leaked_bytes,omitempty" msgpack:"leaked_bytes,omitempty"`
	Related     []Related `json:"related,omitempty" msgpack:"related,omitempty"`
}

// FileReport holds the records anchored in one source file.
type FileReport struct {
	File    string   `json:"file" msgpack:"file"`
	Records []Record `json:"records" msgpack:"records"`
}

// Report is the full output of one pass for one tool. Files appear in the
// order their first record was discovered.
type Report struct {
	Tool  string       `json:"tool" msgpack:"tool"`
	Files []FileReport `json:"files" msgpack:"files"`
}

// Len returns the number of records in the report.
func (r Report) Len() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Records)
	}
	return n
}
