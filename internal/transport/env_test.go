package transport

import "testing"

func TestParseTripleDecimalAndHex(t *testing.T) {
	cases := []struct {
		in                            string
		service, instance, event, grp uint16
	}{
		{"4660:1:32769", 4660, 1, 32769, defaultEventGroup},
		{"0x1234:0x0001:0x8001", 0x1234, 0x0001, 0x8001, defaultEventGroup},
		{"0x1234:0x0001:0x8001@0x0002", 0x1234, 0x0001, 0x8001, 0x0002},
	}
	for _, c := range cases {
		svc, inst, evt, grp, ok := parseTriple(c.in)
		if !ok {
			t.Fatalf("%q: expected to parse", c.in)
		}
		if svc != c.service || inst != c.instance || evt != c.event || grp != c.grp {
			t.Fatalf("%q: got (%d,%d,%d,%d), want (%d,%d,%d,%d)", c.in, svc, inst, evt, grp, c.service, c.instance, c.event, c.grp)
		}
	}
}

func TestParseTripleMalformedIsRejected(t *testing.T) {
	for _, in := range []string{"", "1:2", "1:2:3:4", "a:b:c", "1:2:3@zz"} {
		if _, _, _, _, ok := parseTriple(in); ok {
			t.Fatalf("%q: expected malformed triple to be rejected", in)
		}
	}
}

func TestApplyEnvPreRequestsSubscribesAndFansOut(t *testing.T) {
	bus := NewBus()
	server := NewBinding("server", bus)
	client := NewBinding("client", bus)
	defer server.Shutdown()
	defer client.Shutdown()

	client.applyEnvPreRequests("0x1234:0x0001:0x8001,not-a-triple,0xZZ:1:2")

	var fired bool
	client.RegisterNotificationHandler(func(service, instance, event uint16, payload []byte) {
		if service == 0x1234 && instance == 0x0001 && event == 0x8001 {
			fired = true
		}
	})

	server.OfferService(0x1234, 0x0001, EventOffer{Event: 0x8001, Group: defaultEventGroup})
	server.SendNotification(0x1234, 0x0001, 0x8001, []byte("x"))

	waitFor(t, func() bool { return fired })
}
