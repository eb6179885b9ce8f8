package models

type WaitEntry struct {
	ClientName    string `json:"client_name"`
	PartySize     int    `json:"party_size"`
	RequestedTime string `json:"requested_time"`
}

type Table struct {
	Size      int `json:"size"`
	Available int `json:"available"`
}

type Seating struct {
	WaitEntry
	TableSize int `json:"table_size"`
}
