//go:build integration_test

package demo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
)

const (
	httpAddr = "http://localhost:8080"
	grpcAddr = "localhost:8081"
)

func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checkHealth(ctx, t)

	var (
		wg        = new(sync.WaitGroup)
		questions = []string{"q1", "q2", "q3"}
		users     = []string{"u1", "u2", "u3"}
		players   = make(map[string]string)
	)

	// Create new session
	var ss api.Session
	post(ctx, t, "/v1/sessions", api.CreateSessionRequest{
		QuizID:         "quiz",
		HostID:         "quizmaster",
		MaxPlayers:     10,
		TotalQuestions: len(questions),
	}, &ss)
	t.Logf("Session %s created, code %s", ss.ID, ss.Code)

	// Join by code
	for _, u := range users {
		var resp api.JoinSessionResponse
		post(ctx, t, "/v1/codes/"+ss.Code+"/players", api.JoinSessionRequest{UserID: u, DisplayName: "Player " + u}, &resp)
		players[u] = resp.Player.ID
	}

	// Prepare Redis subscriber
	subscribeAsPlayer(t, makeRedis(t), wg, players["u1"])

	post(ctx, t, "/v1/sessions/"+ss.ID+"/start", nil, &ss)

	// For each question, all players will submit answers concurrently
	for i, q := range questions {
		t.Logf("Starting question %q", q)
		var eg errgroup.Group
		for j, u := range users {
			eg.Go(func() error {
				var resp api.SubmitAnswerResponse
				err := do(ctx, http.MethodPost, "/v1/sessions/"+ss.ID+"/answers", api.SubmitAnswerRequest{
					PlayerID:         players[u],
					QuestionID:       q,
					SelectedItemID:   "A",
					IsCorrect:        (i+j)%2 == 0,
					TimeTakenSeconds: 3 * (j + 1),
				}, &resp)
				if err != nil {
					return fmt.Errorf("user %q submit answer: %w", u, err)
				}

				t.Logf("User %q submitted answer: points=%d, total_score=%d", u, resp.Answer.PointsEarned, resp.TotalScore)
				return nil
			})
		}

		err := eg.Wait()
		require.NoError(t, err)

		time.Sleep(time.Second)

		if i < len(questions)-1 {
			post(ctx, t, "/v1/sessions/"+ss.ID+"/advance", nil, &ss)
		}
	}

	post(ctx, t, "/v1/sessions/"+ss.ID+"/complete", nil, &ss)
	require.Equal(t, domain.SessionStateCompleted, ss.State)

	wg.Wait()
}

func checkHealth(ctx context.Context, t *testing.T) {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func post(ctx context.Context, t *testing.T, path string, body, out any) {
	require.NoError(t, do(ctx, http.MethodPost, path, body, out))
}

func do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, httpAddr+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %s: %s", method, path, resp.StatusCode, e.Reason, e.Message)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func subscribeAsPlayer(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, player string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("local:pubsub:player:%s", player))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			switch n.Event {
			case domain.EventNameLeaderboardUpdated:
				var l domain.Leaderboard
				if err := json.Unmarshal(n.Data, &l); err != nil {
					t.Logf("unmarshal leaderboard: %v", err)
					continue
				}

				t.Logf("%s leaderboard:\n%s", player, formatLeaderboard(l))
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, pattern string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)

	sub := rc.PSubscribe(ctx, pattern)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatLeaderboard(l domain.Leaderboard) string {
	var s string
	for _, e := range l.Entries {
		s += fmt.Sprintf("%d. %s: %d\n", e.Rank, e.DisplayName, e.TotalScore)
	}
	return s
}
