package remote

// wireRecord is the record shape stored by the remote entity-instances service.
type wireRecord struct {
	AgentID         string `json:"agentId"`
	AgentAddress    string `json:"agentAddress"`
	AgentPrivateKey string `json:"agentPrivateKey"`
	IV              string `json:"iv"`
	Tag             string `json:"tag"`
}

type insertRequest struct {
	Data []wireRecord `json:"data"`
}

type listRequest struct {
	DBType string            `json:"dbType"`
	Filter map[string]string `json:"filter"`
}

type listResponse struct {
	Content []wireRecord `json:"content"`
	// pageable metadata, present when showPageableMetaData=true
	Last       *bool `json:"last,omitempty"`
	TotalPages *int  `json:"totalPages,omitempty"`
}
