package peer_test

import (
	"testing"

	"github.com/ardanlabs/gossipchain/foundation/blockchain/peer"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{ID: "id1", Host: "host1"}, {ID: "id2", Host: "host2"}, {ID: "id3", Host: "host3"}},
		},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			ps := peer.NewPeerSet()

			for _, peer := range tst.peers {
				ps.Add(peer)
			}

			if ps.Add(tst.peers[0]) {
				t.Fatalf("Test %s:\tShould not add a known peer twice.", tst.name)
			}

			peers := ps.Copy("")
			if len(peers) != len(tst.peers) {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers))
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			for i := range peers {
				if peers[i] != tst.peers[i] {
					t.Fatalf("Test %s:\tShould get back the peers in discovery order.", tst.name)
				}
			}

			peers = ps.Copy("id2")
			if len(peers) != len(tst.peers)-1 {
				t.Logf("Test %s:\tgot: %d", tst.name, len(peers))
				t.Logf("Test %s:\texp: %d", tst.name, len(tst.peers)-1)
				t.Fatalf("Test %s:\tShould get back the right peers.", tst.name)
			}

			latest, exists := ps.Latest()
			if !exists || latest.ID != "id3" {
				t.Fatalf("Test %s:\tShould get the most recently discovered peer.", tst.name)
			}

			ps.Remove("id3")
			latest, _ = ps.Latest()
			if latest.ID != "id2" || ps.Contains("id3") || ps.Len() != 2 {
				t.Fatalf("Test %s:\tShould remove the peer.", tst.name)
			}

			ps.Add(peer.New("id1", "moved"))
			peers = ps.Copy("")
			if peers[0].ID != "id1" || peers[0].Host != "moved" {
				t.Fatalf("Test %s:\tShould keep the order of a known peer and take its new host: %v", tst.name, peers)
			}
		}

		t.Run(tst.name, f)
	}
}
