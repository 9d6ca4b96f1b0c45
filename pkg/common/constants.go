package common

import "time"

const (
	OperatorTokenTTL = 12 * time.Hour
	MaxIncidentLimit = 500
	MaxDecoyDelay    = 10 * time.Second
)
