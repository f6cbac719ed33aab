// Copyright (c) corvus authors. All rights reserved. Use of this source code
// is governed by an MIT license that can be found in the LICENSE file.

package corvus

import "testing"

func TestBusPublishDeliversToSubscribersInOrder(t *testing.T) {
	b := NewBus()

	var order []string
	if err := b.Subscribe(TopicReload, func(msg any) { order = append(order, "first") }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Subscribe(TopicReload, func(msg any) { order = append(order, "second") }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(TopicReload, ReloadMessage{Plugin: "oneliner"})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("delivery order = %v, want [first second]", order)
	}
}

func TestBusSubscribeUnknownTopicErrors(t *testing.T) {
	b := NewBus()
	if err := b.Subscribe(BusTopic("nonsense"), func(any) {}); err == nil {
		t.Fatal("expected an error subscribing to an unregistered topic")
	}
}

func TestBusRegisterTopicAllowsSubsequentSubscribe(t *testing.T) {
	b := NewBus()
	custom := BusTopic("custom")
	if err := b.RegisterTopic(custom); err != nil {
		t.Fatalf("RegisterTopic: %v", err)
	}
	if err := b.Subscribe(custom, func(any) {}); err != nil {
		t.Fatalf("Subscribe after RegisterTopic: %v", err)
	}
}

func TestBusPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := NewBus()
	b.Publish(TopicPrinter, PrinterMessage{Verb: PrinterFlush})
}

func TestBusPublishPassesMessagePayload(t *testing.T) {
	b := NewBus()
	var got PrinterMessage
	if err := b.Subscribe(TopicPrinter, func(msg any) {
		got = msg.(PrinterMessage)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Publish(TopicPrinter, PrinterMessage{Verb: PrinterSquelch, Key: "#chan"})

	if got.Verb != PrinterSquelch || got.Key != "#chan" {
		t.Errorf("got = %+v", got)
	}
}
