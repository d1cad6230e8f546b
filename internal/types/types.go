package types

type MemberStatus string

const (
	StatusActive   MemberStatus = "active"
	StatusInactive MemberStatus = "inactive"
)

// Member is one user's presence within one party.
type Member struct {
	ConnectionId string       `json:"connection_id"`
	UserId       string       `json:"user_id"`
	UserName     string       `json:"user_name"`
	Status       MemberStatus `json:"status"`
	IsReady      bool         `json:"is_ready"`
}

func (m Member) Active() bool {
	return m.Status == StatusActive
}

// PartyHeader is the party-level record mirrored to the external store on create.
type PartyHeader struct {
	HostId       string `json:"host_id"`
	Status       string `json:"status"`
	CurrentSuite string `json:"current_suite"`
}

type PartyState struct {
	PartyId string   `json:"party_id"`
	HostId  string   `json:"host_id,omitempty"`
	Users   []Member `json:"users"`
}
