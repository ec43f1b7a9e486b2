/*
bms-sentinel - Battery monitoring and kill switch control
Copyright (C) 2025, Packwatch

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package sentinel

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher pushes status snapshots to an MQTT broker. Publishing is
// fire-and-forget at QoS 0; a slow or absent broker must never stall
// the sampling loop.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func NewPublisher(broker, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("bms-sentinel")
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(2 * time.Second)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("connected to MQTT broker %s", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("lost MQTT connection: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warnf("MQTT broker %s not reachable yet, retrying in the background", broker)
	} else if token.Error() != nil {
		return nil, token.Error()
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Publish(s Status) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Errorf("failed to marshal status: %v", err)
		return
	}
	p.client.Publish(p.topic, 0, false, data)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
