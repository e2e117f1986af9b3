package directory

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/golang/glog"
)

const ListPath = "/boards"

type ListResult struct {
	Boards []string `json:"boards"`
}

// `GET /boards` lists the shared boards
func AddListRoute(router *mux.Router, directory *Directory) {
	router.Methods(http.MethodGet).Path(ListPath).Handler(NewListHandler(directory))
}

func NewListHandler(directory *Directory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := &ListResult{
			Boards: []string{},
		}
		for _, name := range directory.SharedBoards() {
			result.Boards = append(result.Boards, name.String())
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			glog.Infof("[dir]list encode error = %s\n", err)
		}
	})
}
