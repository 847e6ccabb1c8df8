package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"cachecluster/pkg/cachenode"
	"cachecluster/pkg/health"
)

// NodeHealthResponse is the wire shape for a single node's health: its
// advertised address alongside the monitor's last-observed status.
type NodeHealthResponse struct {
	NodeID      string `json:"nodeId"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Healthy     bool   `json:"healthy"`
	LastChecked string `json:"lastChecked,omitempty"`
	Status      string `json:"status"`
}

// HealthSummaryResponse is the cluster-wide health rollup.
type HealthSummaryResponse struct {
	TotalNodes     int                  `json:"totalNodes"`
	HealthyNodes   int                  `json:"healthyNodes"`
	UnhealthyNodes int                  `json:"unhealthyNodes"`
	Nodes          []NodeHealthResponse `json:"nodes"`
}

func (s *Server) nodeHealthResponse(node health.DiscoveredNode) NodeHealthResponse {
	resp := NodeHealthResponse{
		NodeID: node.NodeID,
		Host:   node.Host,
		Port:   node.Port,
		Status: cachenode.StatusUnknown.String(),
	}
	if state, ok := s.monitor.State(node.NodeID); ok {
		resp.Status = state.CurrentStatus.String()
		resp.Healthy = state.CurrentStatus == cachenode.StatusHealthy
		if !state.LastCheck.IsZero() {
			resp.LastChecked = state.LastCheck.Format(time.RFC3339)
		}
	}
	return resp
}

func (s *Server) discoveredNode(r *http.Request) (health.DiscoveredNode, bool) {
	id := mux.Vars(r)["id"]
	nodes, err := s.discovery.GetAllNodes(r.Context())
	if err != nil {
		return health.DiscoveredNode{}, false
	}
	for _, n := range nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return health.DiscoveredNode{}, false
}

// handlePing reports that the admin server itself is up, independent of
// any node's health.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListNodes reports every node known to discovery with its
// last-observed health.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.discovery.GetAllNodes(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]NodeHealthResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, s.nodeHealthResponse(n))
	}
	s.writeResponse(w, http.StatusOK, out)
}

// handleGetNode reports a single node's last-observed health.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.discoveredNode(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "node not found")
		return
	}
	s.writeResponse(w, http.StatusOK, s.nodeHealthResponse(node))
}

// handleCheckNode runs an on-demand probe against one node and returns its
// resulting health, outside the monitor's regular cadence. The monitor
// itself looks the id up against discovery; a node it reports as
// NOT_FOUND is answered with a 404.
func (s *Server) handleCheckNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	state := s.monitor.CheckNode(r.Context(), id)

	if state.CurrentStatus == cachenode.StatusNotFound {
		s.writeErrorResponse(w, http.StatusNotFound, "node not found")
		return
	}

	resp := NodeHealthResponse{NodeID: id, Status: state.CurrentStatus.String()}
	if node, ok := s.discoveredNode(r); ok {
		resp.Host = node.Host
		resp.Port = node.Port
	}
	resp.Healthy = state.CurrentStatus == cachenode.StatusHealthy
	if !state.LastCheck.IsZero() {
		resp.LastChecked = state.LastCheck.Format(time.RFC3339)
	}
	s.writeResponse(w, http.StatusOK, resp)
}

func (s *Server) nodesByID(ids []string) []NodeHealthResponse {
	nodes, err := s.discovery.GetAllNodes(s.ctx)
	if err != nil {
		return nil
	}
	byID := make(map[string]health.DiscoveredNode, len(nodes))
	for _, n := range nodes {
		byID[n.NodeID] = n
	}
	out := make([]NodeHealthResponse, 0, len(ids))
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			out = append(out, s.nodeHealthResponse(n))
		}
	}
	return out
}

// handleHealthyNodes reports every node currently classified HEALTHY.
func (s *Server) handleHealthyNodes(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, s.nodesByID(s.monitor.HealthyNodes()))
}

// handleUnhealthyNodes reports every node not currently classified
// HEALTHY.
func (s *Server) handleUnhealthyNodes(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, s.nodesByID(s.monitor.UnhealthyNodes()))
}

// handleHealthSummary reports the cluster-wide health rollup.
func (s *Server) handleHealthSummary(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.discovery.GetAllNodes(r.Context())
	if err != nil {
		s.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]NodeHealthResponse, 0, len(nodes))
	healthy := 0
	for _, n := range nodes {
		resp := s.nodeHealthResponse(n)
		if resp.Healthy {
			healthy++
		}
		out = append(out, resp)
	}
	s.writeResponse(w, http.StatusOK, HealthSummaryResponse{
		TotalNodes:     len(nodes),
		HealthyNodes:   healthy,
		UnhealthyNodes: len(nodes) - healthy,
		Nodes:          out,
	})
}

// handleShutdown triggers the server's own graceful shutdown, the same
// path SIGINT/SIGTERM take.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	go s.cancel()
}

// handleClusterStats reports per-node engine statistics and the ring's
// distribution balance.
func (s *Server) handleClusterStats(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, http.StatusOK, s.manager.ClusterStats())
}
