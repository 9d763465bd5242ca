// internal/workers/medical/medical-query/models.go
package medicalquery

import "interpharma-gateway/internal/models"

type Input struct {
	Message   string `json:"message"`
	Mode      string `json:"mode"`
	Language  string `json:"language"`
	Persona   string `json:"persona"`
	ClientID  string `json:"clientId"`
	Disease   string `json:"disease"`
	Region    string `json:"region"`
	TimeRange string `json:"timeRange"`
}

type Output struct {
	Answer  models.FinalAnswer `json:"answer"`
	Blocked bool               `json:"blocked"`
}
