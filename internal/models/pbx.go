package models

import "time"

type SIPAccount struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Password    string    `json:"password,omitempty"`
	Context     string    `json:"context"`
	Codecs      string    `json:"codecs"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CallerID    string    `json:"callerid,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SIPStats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Offline int `json:"offline"`
}

type QueueMember struct {
	Interface  string `json:"interface"`
	Penalty    int    `json:"penalty"`
	MemberName string `json:"membername"`
}

type Queue struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Strategy     string        `json:"strategy"`
	Timeout      int           `json:"timeout"`
	WrapupTime   int           `json:"wrapuptime"`
	MaxLen       int           `json:"maxlen"`
	ServiceLevel int           `json:"servicelevel"`
	MusicClass   string        `json:"musicclass"`
	Announce     string        `json:"announce"`
	Members      []QueueMember `json:"members"`
	CreatedBy    string        `json:"createdBy,omitempty"`
	UpdatedBy    string        `json:"updatedBy,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type QueueStats struct {
	Total        int `json:"total"`
	TotalMembers int `json:"totalMembers"`
}

type Trunk struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Host             string    `json:"host"`
	Port             int       `json:"port"`
	Username         string    `json:"username"`
	Password         string    `json:"password,omitempty"`
	FromUser         string    `json:"fromuser"`
	FromDomain       string    `json:"fromdomain"`
	Context          string    `json:"context"`
	Qualify          string    `json:"qualify"`
	QualifyFrequency int       `json:"qualify_frequency"`
	Insecure         string    `json:"insecure"`
	Protocol         string    `json:"protocol"`
	Register         string    `json:"register"`
	Status           string    `json:"status"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	UpdatedBy        string    `json:"updatedBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type TrunkStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Registered int `json:"registered"`
}

type Snapshot struct {
	ID        string    `json:"id"`
	Comment   string    `json:"comment"`
	CreatedBy string    `json:"createdBy"`
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files"`
}

type ConfigFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// SystemSettings is the admin-editable settings document. Sections are kept
// as free-form maps and merged key by key on update.
type SystemSettings struct {
	Asterisk  map[string]any `json:"asterisk"`
	Security  map[string]any `json:"security"`
	Paths     map[string]any `json:"paths"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
	UpdatedBy *int64         `json:"updatedBy,omitempty"`
}
