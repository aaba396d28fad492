// driversim replays a straight-line route as a stream of driver position
// reports, for exercising dashboards and the tracking page without a real
// device in the field.
package main

import (
	"flag"
	"log"
	"time"

	"trackcore/client"
	"trackcore/realtime"
)

func main() {
	url := flag.String("url", "ws://localhost:8090/ws", "websocket endpoint")
	driverID := flag.String("driver", "DRV-001", "driver code to report as")
	shipmentID := flag.String("shipment", "", "tracking number to attach reports to")
	fromLat := flag.Float64("from-lat", 40.7128, "start latitude")
	fromLng := flag.Float64("from-lng", -74.0060, "start longitude")
	toLat := flag.Float64("to-lat", 42.3601, "end latitude")
	toLng := flag.Float64("to-lng", -71.0589, "end longitude")
	steps := flag.Int("steps", 60, "number of position reports")
	interval := flag.Duration("interval", 2*time.Second, "delay between reports")
	flag.Parse()

	c := client.New(client.Options{URL: *url})
	if err := c.Connect(); err != nil {
		log.Fatalf("driversim: connect: %v", err)
	}
	defer c.Close()
	log.Printf("driversim: connected to %s as %s", *url, *driverID)

	for i := 0; i <= *steps; i++ {
		frac := float64(i) / float64(*steps)
		ev := &realtime.DriverLocationEvent{
			DriverID:   *driverID,
			Latitude:   *fromLat + (*toLat-*fromLat)*frac,
			Longitude:  *fromLng + (*toLng-*fromLng)*frac,
			ShipmentID: *shipmentID,
			Timestamp:  time.Now().UTC(),
		}
		if err := c.PublishDriverLocation(ev); err != nil {
			log.Printf("driversim: publish: %v", err)
			if !c.Connected() {
				if err := c.Reconnect(); err != nil {
					log.Fatalf("driversim: reconnect: %v", err)
				}
			}
		}
		time.Sleep(*interval)
	}
	log.Printf("driversim: route complete")
}
