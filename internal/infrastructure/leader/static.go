package leader

import "context"

// Static elects a fixed instance. Used for single-instance deployments
// without Redis.
type Static struct {
	InstanceID string
}

func (s Static) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return instanceID == s.InstanceID, nil
}

func (s Static) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return instanceID == s.InstanceID, nil
}

func (s Static) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}
