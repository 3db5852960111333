package model

type HubStats struct {
	TotalUsers       int `json:"total_users"`
	TotalConnections int `json:"total_connections"`
	TotalTopics      int `json:"total_topics"`
}
