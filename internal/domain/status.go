package domain

// ApplyMessageTransition computes the implicit status change caused by a
// participant posting a message. A student message on an OPEN ticket moves
// it to UNDER_REVIEW. A teacher message moves the ticket back to OPEN from
// any other status, including RESOLVED and CLOSED (a teacher reply silently
// reopens the ticket). Admin messages never change status.
func ApplyMessageTransition(role UserRole, current TicketStatus) (TicketStatus, bool) {
	switch role {
	case RoleStudent:
		if current == TicketStatusOpen {
			return TicketStatusUnderReview, true
		}
	case RoleTeacher:
		if current != TicketStatusOpen {
			return TicketStatusOpen, true
		}
	}
	return current, false
}

// CanStudentMessage reports whether a student may post on a ticket in the
// given status. Students are limited to OPEN tickets; teachers may post in
// any status.
func CanStudentMessage(status TicketStatus) bool {
	return status == TicketStatusOpen
}
