package domain

// Question is a single entry in a query's question section (§3).
type Question struct {
	Name            Name
	Type            RRType
	Class           RRClass
	UnicastResponse bool
}

// NewQuestion constructs and validates a Question.
func NewQuestion(name Name, qtype RRType, class RRClass, unicastResponse bool) (Question, error) {
	q := Question{Name: name, Type: qtype, Class: class, UnicastResponse: unicastResponse}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks structural validity: a non-zero name and recognized
// type/class.
func (q Question) Validate() error {
	if q.Name.IsZero() {
		return NewCodecErr("Question.Validate", ErrMalformedRecord)
	}
	if !q.Type.IsValid() {
		return NewCodecErr("Question.Validate", ErrMalformedRecord)
	}
	if !q.Class.IsValid() {
		return NewCodecErr("Question.Validate", ErrMalformedRecord)
	}
	return nil
}
