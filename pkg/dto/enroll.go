package dto

const CommandCapture = "capture"

// EnrollCommand is sent by the enrollment client.
type EnrollCommand struct {
	Command    string `json:"command"`
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Company    string `json:"company"`
	Role       string `json:"role"`
	StatusSIML string `json:"status_sim_l"`
}

// EnrollReply acknowledges one capture attempt.
type EnrollReply struct {
	Status  string `json:"status"` // success, error
	Message string `json:"message"`
}
