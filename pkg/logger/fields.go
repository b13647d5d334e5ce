package logger

// Standard field names for consistent logging.
const (
	FieldService   = "service"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldRequestID = "request_id"
	FieldDuration  = "duration"

	FieldGroupID   = "group_id"
	FieldStudentID = "student_id"
	FieldSessionID = "session_id"
	FieldPaymentID = "payment_id"
	FieldStatus    = "billing_status"
)
