package domain

type ConsultationAnswer string

const (
	AnswerNone         ConsultationAnswer = "None"
	AnswerAccepted     ConsultationAnswer = "Accepted"
	AnswerRejected     ConsultationAnswer = "Rejected"
	AnswerTransferring ConsultationAnswer = "Transferring"
	AnswerFailed       ConsultationAnswer = "Failed"
)

func (a ConsultationAnswer) Valid() bool {
	switch a {
	case AnswerNone, AnswerAccepted, AnswerRejected, AnswerTransferring, AnswerFailed:
		return true
	}
	return false
}

// Declined reports answers a linked participant uses to turn an invitation down.
func (a ConsultationAnswer) Declined() bool {
	return a == AnswerRejected || a == AnswerNone || a == AnswerFailed
}
