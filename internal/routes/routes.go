package routes

import (
	"reflect"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/engine"
)

type Route struct {
	Name   string
	Engine *gin.Engine
}

func (r *Route) Init(engine *gin.Engine) {
	r.Engine = engine
}

type allRoutes struct {
	log *zap.Logger
	eng *engine.Engine
}

// Load registers every HTTP collaborator route against eng, the
// byte-streaming engine. This layer is a thin demonstration of the engine
// end to end (SPEC_FULL.md §1 names it out of core scope) — it carries
// none of the original authorization/link-signing machinery, per the
// Non-goal on authorization policy.
func Load(log *zap.Logger, r *gin.Engine, eng *engine.Engine) {
	log = log.Named("routes")
	defer log.Sugar().Info("Loaded all API Routes")

	route := &Route{Name: "/", Engine: r}
	route.Init(r)
	all := &allRoutes{log: log, eng: eng}

	Type := reflect.TypeOf(all)
	Value := reflect.ValueOf(all)
	for i := 0; i < Type.NumMethod(); i++ {
		Type.Method(i).Func.Call([]reflect.Value{Value, reflect.ValueOf(route)})
	}
}
