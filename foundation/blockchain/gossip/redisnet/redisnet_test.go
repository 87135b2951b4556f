package redisnet_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/redisnet"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Test_PubSub needs a running redis, set GOSSIPCHAIN_REDIS to its address.
func Test_PubSub(t *testing.T) {
	addr := os.Getenv("GOSSIPCHAIN_REDIS")
	if addr == "" {
		t.Skip("GOSSIPCHAIN_REDIS not set")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	prefix := "test-" + uuid.NewString()

	newTransport := func(id string) *redisnet.Transport {
		tr, err := redisnet.New(ctx, redisnet.Config{
			ID:        id,
			Client:    client,
			Prefix:    prefix,
			Heartbeat: 50 * time.Millisecond,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct transport %s: %v", failed, id, err)
		}
		return tr
	}

	t.Log("Given the need to gossip between nodes over redis.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two nodes share a redis.", testID)
		{
			a := newTransport("node-a")
			defer a.Close()
			b := newTransport("node-b")
			defer b.Close()

			time.Sleep(200 * time.Millisecond)

			if peers := a.Peers(); len(peers) != 1 || peers[0].ID != "node-b" {
				t.Fatalf("\t%s\tTest %d:\tShould discover the other node: %v", failed, testID, peers)
			}
			t.Logf("\t%s\tTest %d:\tShould discover the other node.", success, testID)

			for i := range 3 {
				if err := a.Publish(ctx, gossip.DefaultTopic, fmt.Appendf(nil, "msg-%d", i)); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to publish: %v", failed, testID, err)
				}
			}

			for i := range 3 {
				select {
				case d := <-b.Messages():
					if exp := fmt.Sprintf("msg-%d", i); string(d.Data) != exp || d.From != "node-a" || d.Topic != gossip.DefaultTopic {
						t.Fatalf("\t%s\tTest %d:\tShould receive messages in publish order: got %q exp %q", failed, testID, d.Data, exp)
					}
				case <-ctx.Done():
					t.Fatalf("\t%s\tTest %d:\tShould receive message %d.", failed, testID, i)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould receive messages in publish order.", success, testID)

			select {
			case d := <-a.Messages():
				t.Fatalf("\t%s\tTest %d:\tShould not receive its own messages: %q", failed, testID, d.Data)
			case <-time.After(100 * time.Millisecond):
			}
			t.Logf("\t%s\tTest %d:\tShould not receive its own messages.", success, testID)
		}
	}
}
