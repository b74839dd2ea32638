// Package influxdb mirrors accepted switch events into InfluxDB for
// dashboarding.
//
// The mirror is optional. SQLite stays the system of record; points that
// fail to reach InfluxDB are reported through SetOnError and never block
// the hub.
//
// # Data Model
//
//	measurement: switch_events
//	tags:        device_name, line, room
//	fields:      on (0|1), status ("on"|"off")
//	time:        event timestamp
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
//	defer client.Close()
//
//	h := hub.New(hubCfg, store, logger, hub.WithSink(client))
package influxdb
