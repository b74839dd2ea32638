// Package liveclient keeps a viewer connected to the hub and delivers its
// status messages.
//
// The first message burst after connecting is the hub's snapshot (entries
// tagged source=database); everything after it is live.
//
// # Reconnection
//
//	Closed ──Connect──▶ Connecting ──dial ok──▶ Open
//	   ▲                    │                    │
//	   └──── dial error ────┘◀──── drop ─────────┘
//
// After a drop the client waits ReconnectDelay and tries again, up to
// MaxReconnectAttempts in a row. NetworkRestored, FocusGained and
// VisibilityChanged(true) skip the wait and reset the budget.
//
// # Usage
//
//	client := liveclient.New(liveclient.ConfigFrom(cfg.Client), logger)
//	board := liveclient.NewBoard()
//	unsubscribe := client.Subscribe(board.Apply)
//	defer unsubscribe()
//	client.Connect()
package liveclient
