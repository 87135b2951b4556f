package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/gossipchain/app/services/node/handlers"
	"github.com/ardanlabs/gossipchain/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/database"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/gossip/memnet"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/state"
	"github.com/ardanlabs/gossipchain/foundation/blockchain/worker"
	"github.com/ardanlabs/gossipchain/foundation/events"
	"github.com/ardanlabs/gossipchain/foundation/nameservice"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func startWorker(t *testing.T, net *memnet.Network, id string, difficulty int) *worker.Worker {
	gen := genesis.Default()
	gen.Difficulty = difficulty
	gen.SearchWidth = 256

	s, err := state.New(state.Config{
		Wallet:  database.WalletID(id),
		Genesis: gen,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	tr := net.Join(id)
	w := worker.Run(worker.Config{
		State:     s,
		Transport: tr,
		InitDelay: time.Hour,
	})

	t.Cleanup(func() {
		w.Shutdown()
		tr.Close()
	})

	return w
}

func request(mux http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func publicMux(t *testing.T, wrk *worker.Worker) http.Handler {
	ns, err := nameservice.New(t.TempDir())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the name service: %v", failed, err)
	}

	evts := events.New(0)
	t.Cleanup(evts.Shutdown)

	return handlers.PublicMux(handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      zap.NewNop().Sugar(),
		Worker:   wrk,
		NS:       ns,
		Evts:     evts,
	})
}

func Test_PublicAPI(t *testing.T) {
	net := memnet.NewNetwork(0)
	wrk := startWorker(t, net, "a", 1)
	startWorker(t, net, "b", 1)

	mux := publicMux(t, wrk)

	var mined database.Block

	t.Log("Given the need to drive a node through its public API.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen submitting a transaction with no receiver.", testID)
		{
			w := request(mux, http.MethodPost, "/v1/tx", `{"amount": 5}`)
			if w.Code != http.StatusCreated {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 201: %d %s", failed, testID, w.Code, w.Body)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 201.", success, testID)

			var tx public.Tx
			if err := json.NewDecoder(w.Body).Decode(&tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the transaction: %v", failed, testID, err)
			}
			if tx.From != "a" || tx.To != "b" || tx.Amount != 5 {
				t.Fatalf("\t%s\tTest %d:\tShould send from the node to its only peer: %+v", failed, testID, tx)
			}
			t.Logf("\t%s\tTest %d:\tShould send from the node to its only peer.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen submitting a transaction from a bad wallet.", testID)
		{
			w := request(mux, http.MethodPost, "/v1/tx", `{"from": "bill", "to": "b"}`)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400: %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen mining the pending transaction.", testID)
		{
			w := request(mux, http.MethodPost, "/v1/mine", "")
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200: %d %s", failed, testID, w.Code, w.Body)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 200.", success, testID)

			var block database.Block
			if err := json.NewDecoder(w.Body).Decode(&block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the block: %v", failed, testID, err)
			}
			if len(block.Transactions) != 1 || block.Hash == "" {
				t.Fatalf("\t%s\tTest %d:\tShould get a sealed block with one transaction: %+v", failed, testID, block)
			}
			t.Logf("\t%s\tTest %d:\tShould get a sealed block with one transaction.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen mining with an empty mempool.", testID)
		{
			w := request(mux, http.MethodPost, "/v1/mine", "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400: %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen reading the chain.", testID)
		{
			w := request(mux, http.MethodGet, "/v1/chain", "")
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200: %d", failed, testID, w.Code)
			}

			var chain public.Chain
			if err := json.NewDecoder(w.Body).Decode(&chain); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to decode the chain: %v", failed, testID, err)
			}
			if chain.Length != 1 || !chain.Valid {
				t.Fatalf("\t%s\tTest %d:\tShould get a valid chain holding the mined block: %d %v", failed, testID, chain.Length, chain.Valid)
			}
			t.Logf("\t%s\tTest %d:\tShould get a valid chain holding the mined block.", success, testID)

			mined = chain.Blocks[0]
		}

		testID++
		t.Logf("\tTest %d:\tWhen reading blocks by index.", testID)
		{
			w := request(mux, http.MethodGet, "/v1/blocks/0", "")
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 200: %d", failed, testID, w.Code)
			}

			var block database.Block
			if err := json.NewDecoder(w.Body).Decode(&block); err != nil || !block.Equal(mined) {
				t.Fatalf("\t%s\tTest %d:\tShould get the mined block: %+v %v", failed, testID, block, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get the mined block.", success, testID)

			if w := request(mux, http.MethodGet, "/v1/blocks/1", ""); w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 404 past the tail: %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 404 past the tail.", success, testID)

			if w := request(mux, http.MethodGet, "/v1/blocks/first", ""); w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 400 for a bad index: %d", failed, testID, w.Code)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 400 for a bad index.", success, testID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := wrk.Status(ctx); err != nil {
		t.Fatalf("\t%s\tShould have a running worker: %v", failed, err)
	}
}

func Test_MineTimeout(t *testing.T) {
	net := memnet.NewNetwork(0)

	// No hash will realistically match a target this long.
	wrk := startWorker(t, net, "a", 64)
	mux := publicMux(t, wrk)

	t.Log("Given the need to report a mine request that runs out of time.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the request deadline passes before a block is mined.", testID)
		{
			if w := request(mux, http.MethodPost, "/v1/tx", `{"to": "b"}`); w.Code != http.StatusCreated {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit a transaction: %d", failed, testID, w.Code)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			r := httptest.NewRequest(http.MethodPost, "/v1/mine", nil).WithContext(ctx)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("\t%s\tTest %d:\tShould receive a status code of 503: %d %s", failed, testID, w.Code, w.Body)
			}
			t.Logf("\t%s\tTest %d:\tShould receive a status code of 503.", success, testID)
		}
	}
}
