package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/greenroomhq/greenroom/internal/db"
	"github.com/greenroomhq/greenroom/internal/diff"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Inbound traffic is only
	// used to detect disconnects, so it stays small.
	maxMessageSize = 4 * 1024
)

var diffUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// diffMessage is one outbound frame: a snapshot tagged with the repo it
// came from, so clients can tell the attempt's repos apart.
type diffMessage struct {
	RepoID   string         `json:"repo_id"`
	RepoName string         `json:"repo_name"`
	Snapshot *diff.Snapshot `json:"snapshot"`
}

// handleDiffWS upgrades the connection and forwards live diff snapshots for
// every repo linked to the attempt until the streams end or the client
// leaves. A repo_id query parameter narrows the stream to one repo.
func (s *Server) handleDiffWS(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.orch.GetAttempt(r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	repos, err := s.orch.Repos(attempt.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if repoID := r.URL.Query().Get("repo_id"); repoID != "" {
		filtered := repos[:0]
		for _, info := range repos {
			if info.Repo.ID == repoID {
				filtered = append(filtered, info)
			}
		}
		if len(filtered) == 0 {
			respondMessage(w, http.StatusNotFound, "repo not linked to attempt")
			return
		}
		repos = filtered
	}
	statsOnly := r.URL.Query().Get("stats_only") == "true"

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Start every repo's stream before upgrading so setup failures still
	// travel back as plain HTTP errors.
	type repoStream struct {
		info    db.AttemptRepoInfo
		updates <-chan diff.Update
	}
	streams := make([]repoStream, 0, len(repos))
	for _, info := range repos {
		updates, err := s.orch.Container().StreamDiff(ctx, attempt, info.Repo.ID, statsOnly)
		if err != nil {
			respondError(w, err)
			return
		}
		streams = append(streams, repoStream{info: info, updates: updates})
	}

	conn, err := diffUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("diff websocket upgrade failed", "attempt", attempt.ID, "error", err)
		return
	}
	defer conn.Close()

	// The client sends nothing meaningful; reads exist to notice the
	// connection dropping, which cancels the streams.
	go func() {
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	// Fan the per-repo streams into one channel, tagging each snapshot
	// with its repo.
	merged := make(chan diffMessage)
	var wg sync.WaitGroup
	for _, st := range streams {
		wg.Add(1)
		go func(st repoStream) {
			defer wg.Done()
			for update := range st.updates {
				if update.Err != nil {
					s.logger.Warn("diff stream failed",
						"attempt", attempt.ID, "repo", st.info.Repo.Name, "error", update.Err)
					return
				}
				select {
				case merged <- diffMessage{
					RepoID:   st.info.Repo.ID,
					RepoName: st.info.Repo.Name,
					Snapshot: update.Snapshot,
				}:
				case <-ctx.Done():
					return
				}
			}
		}(st)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for msg := range merged {
		if err := writeDiffMessage(conn, msg); err != nil {
			cancel()
			for range merged {
			}
			return
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeDiffMessage(conn *websocket.Conn, msg diffMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
