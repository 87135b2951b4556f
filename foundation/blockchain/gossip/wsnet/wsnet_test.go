package wsnet_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/wsnet"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type node struct {
	tr  *wsnet.Transport
	srv *httptest.Server
}

func startNode(t *testing.T, id string) node {
	srv := httptest.NewUnstartedServer(nil)

	tr := wsnet.New(wsnet.Config{
		ID:        id,
		Host:      srv.Listener.Addr().String(),
		EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
	})

	srv.Config.Handler = tr
	srv.Start()

	return node{tr: tr, srv: srv}
}

func (n node) stop() {
	n.tr.Close()
	n.srv.Close()
}

func waitFor(d time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fn()
}

func Test_Mesh(t *testing.T) {
	t.Log("Given the need to gossip between nodes over websockets.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen three nodes join through each other.", testID)
		{
			a := startNode(t, "node-a")
			b := startNode(t, "node-b")
			c := startNode(t, "node-c")
			defer a.stop()
			defer b.stop()
			defer c.stop()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := b.tr.Connect(ctx, a.srv.Listener.Addr().String()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect b to a: %v", failed, testID, err)
			}
			if err := c.tr.Connect(ctx, b.srv.Listener.Addr().String()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect c to b: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to connect.", success, testID)

			meshed := waitFor(5*time.Second, func() bool {
				return len(a.tr.Peers()) == 2 && len(b.tr.Peers()) == 2 && len(c.tr.Peers()) == 2
			})
			if !meshed {
				t.Fatalf("\t%s\tTest %d:\tShould discover every peer: a%v b%v c%v", failed, testID, a.tr.Peers(), b.tr.Peers(), c.tr.Peers())
			}
			t.Logf("\t%s\tTest %d:\tShould discover every peer.", success, testID)

			if peers := b.tr.Peers(); peers[0].ID != "node-a" || peers[1].ID != "node-c" {
				t.Fatalf("\t%s\tTest %d:\tShould list peers in discovery order: %v", failed, testID, peers)
			}
			t.Logf("\t%s\tTest %d:\tShould list peers in discovery order.", success, testID)

			const msgs = 5
			for i := range msgs {
				if err := a.tr.Publish(ctx, gossip.DefaultTopic, fmt.Appendf(nil, "msg-%d", i)); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to publish: %v", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to publish.", success, testID)

			for _, n := range []node{b, c} {
				for i := range msgs {
					select {
					case d := <-n.tr.Messages():
						if exp := fmt.Sprintf("msg-%d", i); string(d.Data) != exp || d.From != "node-a" {
							t.Fatalf("\t%s\tTest %d:\tShould receive messages in publish order: %s got %q exp %q", failed, testID, n.tr.ID(), d.Data, exp)
						}
					case <-ctx.Done():
						t.Fatalf("\t%s\tTest %d:\tShould receive message %d on %s.", failed, testID, i, n.tr.ID())
					}
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive messages in publish order.", success, testID)

			time.Sleep(100 * time.Millisecond)
			for _, n := range []node{a, b, c} {
				select {
				case d := <-n.tr.Messages():
					t.Fatalf("\t%s\tTest %d:\tShould receive each message once: %s got %q", failed, testID, n.tr.ID(), d.Data)
				default:
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive each message once.", success, testID)

			b.stop()
			gone := waitFor(5*time.Second, func() bool {
				return len(a.tr.Peers()) == 1 && len(c.tr.Peers()) == 1
			})
			if !gone {
				t.Fatalf("\t%s\tTest %d:\tShould drop a peer that leaves: a%v c%v", failed, testID, a.tr.Peers(), c.tr.Peers())
			}
			t.Logf("\t%s\tTest %d:\tShould drop a peer that leaves.", success, testID)
		}
	}
}

func Test_Redial(t *testing.T) {
	t.Log("Given the need to accept a peer that restarts with the same id.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer dials again before its old connection dropped.", testID)
		{
			a := startNode(t, "node-a")
			b := startNode(t, "node-b")
			defer a.stop()
			defer b.stop()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := a.tr.Connect(ctx, b.srv.Listener.Addr().String()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect a to b: %v", failed, testID, err)
			}

			// The restarted node reuses the id but listens somewhere else. The
			// old transport stays up so b never sees the first connection close
			// on its own.
			restarted := startNode(t, "node-a")
			defer restarted.stop()

			if err := restarted.tr.Connect(ctx, b.srv.Listener.Addr().String()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect the restarted node to b: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to connect the restarted node.", success, testID)

			host := restarted.srv.Listener.Addr().String()
			replaced := waitFor(5*time.Second, func() bool {
				peers := b.tr.Peers()
				return len(peers) == 1 && peers[0].Host == host && len(restarted.tr.Peers()) == 1
			})
			if !replaced {
				t.Fatalf("\t%s\tTest %d:\tShould replace the old connection: b%v restarted%v", failed, testID, b.tr.Peers(), restarted.tr.Peers())
			}
			t.Logf("\t%s\tTest %d:\tShould replace the old connection.", success, testID)

			if err := b.tr.Publish(ctx, gossip.DefaultTopic, []byte("hello")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to publish: %v", failed, testID, err)
			}

			select {
			case d := <-restarted.tr.Messages():
				if string(d.Data) != "hello" || d.From != "node-b" {
					t.Fatalf("\t%s\tTest %d:\tShould deliver to the restarted node: %q from %s", failed, testID, d.Data, d.From)
				}
			case <-ctx.Done():
				t.Fatalf("\t%s\tTest %d:\tShould deliver to the restarted node.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould deliver to the restarted node.", success, testID)
		}
	}
}
