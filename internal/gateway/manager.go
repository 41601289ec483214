package gateway

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/austinmesh/bridger/pkg/log"
	"github.com/austinmesh/bridger/pkg/meshmodel"
)

// passwordAlphabet and passwordLength are the documented contract for
// generated gateway passwords.
const (
	passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	passwordLength   = 10
)

// gatewayUserRegexp matches broker users that are gateways: "<owner_id>-<8
// hex chars>".
var gatewayUserRegexp = regexp.MustCompile(`^([0-9]+)-([0-9a-fA-F]{8})$`)

// Record is a GatewayRecord: the radio node id and the owner that
// provisioned it. Everything else (user string, ACL topic) is derived.
type Record struct {
	NodeID  uint32
	OwnerID uint64
}

// UserString is the broker username derived from the record: "<owner_id>-<8-hex-lower>".
func (r Record) UserString() string {
	return fmt.Sprintf("%d-%s", r.OwnerID, meshmodel.HexWithoutBang(r.NodeID))
}

// NotFound is returned by GetGateway when no broker user matches input_id.
var ErrNotFound = errors.New("gateway: not found")

// Error wraps a broker "already exists" (HTTP 400-family) conflict from
// CreateGateway, carrying the record the caller attempted to create so it
// can report "already exists" without a second lookup.
type Error struct {
	Record Record
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("gateway: %s already exists: %v", e.Record.UserString(), e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Manager is the public contract on top of the EMQX admin API: create,
// list, get, delete, reset password, and update the ACL rule set for
// gateway users. It carries no long-lived state of its own;
// gateway identity is entirely derivable from broker state.
type Manager struct {
	emqx      *EMQXClient
	topicBase string // e.g. "egr/home/2/e", stripped of any trailing "/#"
}

// NewManager builds a Manager. topicBase is the ingest base topic
// (MQTT_TOPIC with any trailing "/#" removed); gateway ACL rules are scoped
// under it.
func NewManager(emqx *EMQXClient, topicBase string) *Manager {
	return &Manager{emqx: emqx, topicBase: strings.TrimSuffix(topicBase, "/#")}
}

// prepareNodeID validates inputID (with or without a leading "!", exactly 8
// hex chars) and returns the parsed node id.
func prepareNodeID(inputID string) (uint32, error) {
	return meshmodel.ParseNodeID(inputID)
}

func generatePassword() (string, error) {
	b := make([]byte, passwordLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("gateway: generate password: %w", err)
		}
		b[i] = passwordAlphabet[n.Int64()]
	}
	return string(b), nil
}

// aclRuleFor builds the single ACL rule a gateway is granted: publish on
// any channel under its own node id.
func (m *Manager) aclRuleFor(nodeID uint32) ACLRule {
	return ACLRule{
		Action:     "all",
		Topic:      fmt.Sprintf("%s/+/%s", m.topicBase, meshmodel.HexWithBang(nodeID)),
		Permission: "allow",
	}
}

// CreateGateway validates inputID, generates a password, creates the
// broker user, and installs its ACL rule. On an "already exists" conflict
// (HTTP 400-family) it returns *Error carrying the derived record.
func (m *Manager) CreateGateway(ctx context.Context, inputID string, ownerID uint64) (Record, string, error) {
	nodeID, err := prepareNodeID(inputID)
	if err != nil {
		return Record{}, "", err
	}
	rec := Record{NodeID: nodeID, OwnerID: ownerID}

	password, err := generatePassword()
	if err != nil {
		return Record{}, "", err
	}

	if err := m.emqx.createUser(ctx, rec.UserString(), password); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return Record{}, "", &Error{Record: rec, Err: err}
		}
		return Record{}, "", fmt.Errorf("gateway: create user: %w", err)
	}

	if err := m.emqx.putUserRules(ctx, rec.UserString(), []ACLRule{m.aclRuleFor(nodeID)}); err != nil {
		return Record{}, "", fmt.Errorf("gateway: install acl rule for %s: %w", rec.UserString(), err)
	}

	log.Infof("gateway: created %s", rec.UserString())
	return rec, password, nil
}

// DeleteGateway deletes the broker user and its ACL rule, reporting whether
// both succeeded.
func (m *Manager) DeleteGateway(ctx context.Context, inputID string) bool {
	rec, err := m.GetGateway(ctx, inputID)
	if err != nil {
		log.Warnf("gateway: delete: %v", err)
		return false
	}

	userErr := m.emqx.deleteUser(ctx, rec.UserString())
	ruleErr := m.emqx.deleteUserRules(ctx, rec.UserString())
	if userErr != nil {
		log.Warnf("gateway: delete user %s: %v", rec.UserString(), userErr)
	}
	if ruleErr != nil {
		log.Warnf("gateway: delete acl rules for %s: %v", rec.UserString(), ruleErr)
	}
	return userErr == nil && ruleErr == nil
}

// ListGateways scans the broker's user list, keeping only entries matching
// the gateway user pattern.
func (m *Manager) ListGateways(ctx context.Context) ([]Record, error) {
	users, err := m.emqx.listUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: list users: %w", err)
	}

	var out []Record
	for _, u := range users {
		match := gatewayUserRegexp.FindStringSubmatch(u.UserID)
		if match == nil {
			continue
		}
		ownerID, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}
		nodeID, err := meshmodel.ParseNodeID(match[2])
		if err != nil {
			continue
		}
		out = append(out, Record{NodeID: nodeID, OwnerID: ownerID})
	}
	return out, nil
}

// GetGateway returns the first gateway whose node id matches inputID, or
// ErrNotFound.
func (m *Manager) GetGateway(ctx context.Context, inputID string) (Record, error) {
	nodeID, err := prepareNodeID(inputID)
	if err != nil {
		return Record{}, err
	}

	gateways, err := m.ListGateways(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, g := range gateways {
		if g.NodeID == nodeID {
			return g, nil
		}
	}
	return Record{}, ErrNotFound
}

// ResetPassword generates a new password for an existing gateway and
// updates the broker.
func (m *Manager) ResetPassword(ctx context.Context, inputID string, ownerID uint64) (Record, string, error) {
	nodeID, err := prepareNodeID(inputID)
	if err != nil {
		return Record{}, "", err
	}
	rec := Record{NodeID: nodeID, OwnerID: ownerID}

	password, err := generatePassword()
	if err != nil {
		return Record{}, "", err
	}
	if err := m.emqx.updateUserPassword(ctx, rec.UserString(), password); err != nil {
		return Record{}, "", fmt.Errorf("gateway: reset password for %s: %w", rec.UserString(), err)
	}
	return rec, password, nil
}

// UpdateRules deletes and recreates inputID's ACL rule, used when the topic
// template changes.
func (m *Manager) UpdateRules(ctx context.Context, inputID string) bool {
	rec, err := m.GetGateway(ctx, inputID)
	if err != nil {
		log.Warnf("gateway: update rules: %v", err)
		return false
	}

	if err := m.emqx.deleteUserRules(ctx, rec.UserString()); err != nil {
		log.Warnf("gateway: delete stale acl rules for %s: %v", rec.UserString(), err)
	}
	if err := m.emqx.putUserRules(ctx, rec.UserString(), []ACLRule{m.aclRuleFor(rec.NodeID)}); err != nil {
		log.Errorf("gateway: recreate acl rules for %s: %v", rec.UserString(), err)
		return false
	}
	return true
}
