package bot

import "context"

// HandleMemberUpdate reacts to a change of the bot's own membership in a
// destination. Removal deletes the subscription record; anything else
// ensures a record exists without discarding an existing feed list.
func (r *Router) HandleMemberUpdate(ctx context.Context, destinationID, newStatus string) {
	switch newStatus {
	case "kicked", "left":
		if err := r.store.DeleteDestination(ctx, destinationID); err != nil {
			r.log.Error("delete destination", "destination", destinationID, "error", err)
			return
		}
		r.log.Info("destination removed", "destination", destinationID, "status", newStatus)
	default:
		cfg, err := r.store.GetConfig(ctx, destinationID)
		if err != nil {
			r.log.Error("get config", "destination", destinationID, "error", err)
			return
		}
		if err := r.store.SaveConfig(ctx, destinationID, cfg); err != nil {
			r.log.Error("register destination", "destination", destinationID, "error", err)
			return
		}
		r.log.Info("destination registered", "destination", destinationID, "status", newStatus)
	}
}
