package dto

// GateStatus is the JSON message sent after every dashboard frame.
type GateStatus struct {
	Users []UserStatus `json:"users"`
}

type UserStatus struct {
	User      WorkerResponse `json:"user"`
	PPEStatus PPEStatus      `json:"ppe_status"`
}

type PPEStatus struct {
	Wajib       map[string]bool `json:"wajib"`
	Opsional    map[string]bool `json:"opsional"`
	Overall     string          `json:"overall"`
	Color       string          `json:"color"`
	Description []string        `json:"description"`
}
