package server

import (
	"chatrelay/models"
	"chatrelay/protocol"
)

func (s *Server) dispatch(session *Session, cmd *protocol.Command) {
	switch cmd.Type {
	case protocol.TypeDirectText, protocol.TypeDirectFile:
		s.handleDirect(session, cmd)
	case protocol.TypeGroupText, protocol.TypeGroupFile:
		s.handleGroupMessage(session, cmd)
	case protocol.TypeCreateGroup:
		s.handleCreateGroup(session, cmd)
	case protocol.TypeLeaveGroup:
		s.handleLeaveGroup(session, cmd)
	case protocol.TypeUpdateGroup:
		s.handleUpdateGroup(session, cmd)
	case protocol.TypeAddToGroup:
		s.handleAddToGroup(session, cmd)
	case protocol.TypeGroupInfo:
		s.handleGroupInfo(session, cmd)
	case protocol.TypeAck:
		s.handleAck(session, cmd)
	}
}

// handleDirect forwards a MSG or FILE line verbatim to the recipient's
// session and acknowledges the outcome to the sender. Offline recipient
// means FAILED; there is no queueing and no retry.
func (s *Server) handleDirect(session *Session, cmd *protocol.Command) {
	env, err := cmd.Envelope()
	if err != nil {
		return
	}

	target, online := s.presence.Lookup(env.Recipient)
	if !online {
		env.Status = models.StatusFailed
		failedDeliveries.WithLabelValues(deliveryScope(env.Kind)).Inc()
		session.Send(protocol.Ack(env.ID, env.Status))
		return
	}

	target.Send(cmd.Raw)
	forwardsTotal.WithLabelValues(string(env.Kind)).Inc()
	s.acks.put(env.ID, session.Username())

	env.Status = models.StatusDelivered
	s.logForward(env)
	session.Send(protocol.Ack(env.ID, env.Status))
}

// handleGroupMessage fans a GROUP_MSG or GROUP_FILE line out to every member
// except the sender. Success means the group existed, not that every member
// was reachable; offline members are skipped silently.
func (s *Server) handleGroupMessage(session *Session, cmd *protocol.Command) {
	env, err := cmd.Envelope()
	if err != nil {
		return
	}

	members, err := s.directory.Info(env.Recipient)
	if err != nil {
		env.Status = models.StatusFailed
		failedDeliveries.WithLabelValues(deliveryScope(env.Kind)).Inc()
		session.Send(protocol.Ack(env.ID, env.Status))
		return
	}

	for _, member := range members {
		if member == env.Sender {
			continue
		}
		if target, online := s.presence.Lookup(member); online {
			target.Send(cmd.Raw)
			forwardsTotal.WithLabelValues(string(env.Kind)).Inc()
		}
	}

	s.acks.put(env.ID, session.Username())

	env.Status = models.StatusDelivered
	s.logForward(env)
	session.Send(protocol.Ack(env.ID, env.Status))
}

func deliveryScope(k models.Kind) string {
	if k.Group() {
		return "group"
	}
	return "direct"
}

func (s *Server) logForward(env *models.Envelope) {
	s.log.Debug().
		Str("msg_id", env.ID).
		Str("kind", string(env.Kind)).
		Str("scope", deliveryScope(env.Kind)).
		Bool("file", env.Kind.File()).
		Time("accepted_at", env.Timestamp).
		Msg("message forwarded")
}

// handleCreateGroup registers the group and notifies every online member,
// creator included, with the effective member set.
func (s *Server) handleCreateGroup(session *Session, cmd *protocol.Command) {
	name, creator := cmd.Args[0], cmd.Args[1]
	members := protocol.SplitMembers(cmd.Args[2])

	effective, err := s.directory.Create(name, creator, members)
	if err != nil {
		s.log.Warn().Err(err).Str("group", name).Str("creator", creator).Msg("group not created")
		return
	}

	s.log.Info().Str("group", name).Strs("members", effective).Msg("group created")
	s.notifyMembers(effective, protocol.GroupCreated(name, effective))
}

func (s *Server) handleLeaveGroup(session *Session, cmd *protocol.Command) {
	name, user := cmd.Args[0], cmd.Args[1]

	remaining, deleted, err := s.directory.RemoveMember(name, user)
	if err != nil {
		s.log.Debug().Err(err).Str("group", name).Str("user", user).Msg("leave ignored")
		return
	}

	if deleted {
		s.log.Info().Str("group", name).Str("user", user).Msg("last member left, group deleted")
		return
	}

	s.log.Info().Str("group", name).Str("user", user).Msg("member left group")
	s.notifyMembers(remaining, protocol.GroupUpdate(name, protocol.EventMemberLeft, user))
}

// handleUpdateGroup renames a group. A non-member actor is a silent no-op on
// the wire; the directory still reports it for logging.
func (s *Server) handleUpdateGroup(session *Session, cmd *protocol.Command) {
	oldName, newName, actor := cmd.Args[0], cmd.Args[1], cmd.Args[2]

	members, err := s.directory.Rename(oldName, newName, actor)
	if err != nil {
		s.log.Debug().Err(err).Str("group", oldName).Str("actor", actor).Msg("rename ignored")
		return
	}

	s.log.Info().Str("group", oldName).Str("new_name", newName).Str("actor", actor).Msg("group renamed")
	s.notifyMembers(members, protocol.GroupUpdate(oldName, protocol.EventNameChanged, newName))
}

func (s *Server) handleAddToGroup(session *Session, cmd *protocol.Command) {
	name, actor, newMember := cmd.Args[0], cmd.Args[1], cmd.Args[2]

	members, err := s.directory.AddMember(name, actor, newMember)
	if err != nil {
		s.log.Debug().Err(err).Str("group", name).Str("actor", actor).Msg("add ignored")
		return
	}

	s.log.Info().Str("group", name).Str("actor", actor).Str("added", newMember).Msg("member added to group")
	s.notifyMembers(members, protocol.GroupUpdate(name, protocol.EventUserAdded, newMember))
}

// handleGroupInfo replies to the requester only. An absent group gets no
// reply at all; the requester treats silence as "no such group".
func (s *Server) handleGroupInfo(session *Session, cmd *protocol.Command) {
	name := cmd.Args[0]

	members, err := s.directory.Info(name)
	if err != nil {
		return
	}
	session.Send(protocol.GroupInfo(name, members))
}

// handleAck routes a client status echo (typically READ) back to the sender
// of the original message, looked up through the correlation table recorded
// at forward time. An unknown message id is dropped.
func (s *Server) handleAck(session *Session, cmd *protocol.Command) {
	msgID := cmd.Args[0]

	origin, ok := s.acks.get(msgID)
	if !ok || origin == session.Username() {
		return
	}

	if target, online := s.presence.Lookup(origin); online {
		target.Send(cmd.Raw)
	}
}

// notifyMembers sends one notice to every currently online user in the list.
func (s *Server) notifyMembers(members []string, notice string) {
	for _, member := range members {
		if target, online := s.presence.Lookup(member); online {
			target.Send(notice)
		}
	}
}
