package handler

import "net/http"

// HealthCheck は死活監視用のエンドポイント。依存サービスには問い合わせない。
// GET /health-check
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "ToDo service up & running"})
}
