// Command fume-probe is a standalone connectivity check against an MQTT
// broker: it dials the target, sends a CONNECT, and waits briefly for a
// CONNACK. It exists so an operator can verify a broker is reachable
// before kicking off a long `fume fuzz` run, and so that check can also be
// scripted independently of the fuzzer itself.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func main() {
	target := flag.String("target", "127.0.0.1:1883", "broker address, host:port")
	timeout := flag.Duration("timeout", 2*time.Second, "connect timeout")
	clientID := flag.String("client-id", "fume-probe", "MQTT client identifier")
	flag.Parse()

	brokerURL := fmt.Sprintf("tcp://%s", *target)

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(*clientID).
		SetConnectTimeout(*timeout).
		SetAutoReconnect(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(*timeout) {
		log.Printf("fume-probe: timed out connecting to %s after %s", *target, *timeout)
		os.Exit(1)
	}
	if err := token.Error(); err != nil {
		log.Printf("fume-probe: connect to %s failed: %v", *target, err)
		os.Exit(1)
	}

	log.Printf("fume-probe: connected to %s as %q", *target, *clientID)
	client.Disconnect(250)
}
