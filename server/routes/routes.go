package routes

const (
	AllRoutesPrefix = "/api/v1"

	LiveRoute       = "/live"
	LiveStartRoute  = "/live/start"
	LiveStopRoute   = "/live/stop"
	EventsRoute     = "/events"
	EventsLoadRoute = "/events/load"
	ScansRoute      = "/scans"
	ScanStatusRoute = "/scans/{" + ParamScanType + "}"
	WebSocketRoute  = "/ws"

	ParamScanType = "scan_type"
	ParamLimit    = "limit"
)
