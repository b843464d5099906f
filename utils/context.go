package utils

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/joy095/roomslot/logger"
	"github.com/joy095/roomslot/models/shared_models"
)

// ActorKey is the gin context key the auth middleware stores the caller under.
const ActorKey = "actor"

func SetActor(c *gin.Context, actor shared_models.Actor) {
	c.Set(ActorKey, actor)
}

var (
	ErrActorNotFound = errors.New("authentication required: no actor on the request")
	ErrActorInvalid  = errors.New("unauthorized: malformed actor on the request")
)

// ActorFromContext is the silent lookup, for callers where anonymous requests are normal.
func ActorFromContext(c *gin.Context) (shared_models.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return shared_models.Actor{}, false
	}
	actor, ok := v.(shared_models.Actor)
	return actor, ok
}

// GetActorFromContext returns the authenticated caller set by the auth middleware.
// Handlers behind the auth middleware use it; a miss there is a wiring fault.
func GetActorFromContext(c *gin.Context) (shared_models.Actor, error) {
	v, exists := c.Get(ActorKey)
	if !exists {
		logger.ErrorLogger.Errorf("Actor not found in context for %s", c.FullPath())
		return shared_models.Actor{}, ErrActorNotFound
	}
	actor, ok := v.(shared_models.Actor)
	if !ok {
		logger.ErrorLogger.Errorf("Actor in context has unexpected type %T", v)
		return shared_models.Actor{}, ErrActorInvalid
	}
	return actor, nil
}
