package models

// Match is a chunk returned by a similarity query.
type Match struct {
	ID         string  `json:"id"`
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Similarity float32 `json:"similarity"`
}

// Answer is the result of one question against the loaded document.
type Answer struct {
	SessionID    string  `json:"session_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Question     string  `json:"question"`
	Content      string  `json:"answer"`
	Context      []Match `json:"context"`
	Prompt       string  `json:"-"`
}

// ContextTexts returns the chunk texts in ranked order.
func (a *Answer) ContextTexts() []string {
	out := make([]string, len(a.Context))
	for i, m := range a.Context {
		out[i] = m.Text
	}
	return out
}
