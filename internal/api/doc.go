// Package api serves the read-only HTTP status surface of switchhub.
//
// Endpoints:
//
//	GET /api/v1/health                    component probes, subscriber count
//	GET /api/v1/reports/daily?days=       events per UTC day, newest first
//	GET /api/reports/daily                same report, legacy path
//	GET /api/v1/devices/status            latest stored status per device
//	GET /api/v1/devices/{name}/history    recent rows for one device (?limit=)
//	GET /metrics                          Prometheus exposition
//
// Live updates are not served here; viewers connect to the hub's WebSocket
// listener instead.
//
// The server follows the same lifecycle as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
