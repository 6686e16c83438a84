package index

// Posting records that a document holds a term, and how often, within one
// field.
type Posting struct {
	DocID     int64 `json:"d"`
	Frequency int   `json:"f"`
}

// PostingList is sorted by ascending DocID.
type PostingList []Posting

// TermEntry is one term of a field's dictionary with its postings.
type TermEntry struct {
	Term     string      `json:"t"`
	Postings PostingList `json:"p"`
}

// NumericEntry is one (value, document) pair of an integer field column.
// Columns are sorted by Value, then DocID.
type NumericEntry struct {
	Value int64 `json:"v"`
	DocID int64 `json:"d"`
}

func compareNumeric(a, b NumericEntry) int {
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	case a.DocID < b.DocID:
		return -1
	case a.DocID > b.DocID:
		return 1
	default:
		return 0
	}
}
