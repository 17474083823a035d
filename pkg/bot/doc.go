// Package bot routes platform updates to the enforcement engine, the policy
// service and the broadcast flow.
//
// # Overview
//
// Dispatcher reads updates from a platform.Source and spreads them over a
// fixed number of ordered lanes. An update's lane is chosen from its chat id,
// so everything that happens in one group (or one private chat) is handled
// in arrival order while different groups proceed in parallel. Each update
// runs under its own timeout; a panicking handler is recovered, logged and
// counted without taking the lane down.
//
// Bot is the Handler. Plain group messages go to the enforcement engine,
// verify buttons to Engine.HandleVerify, and commands to the command table:
//
//	/start      register for broadcasts (private chat)
//	/help       list commands
//	/fsub       set or disable the group's join requirement (group admins)
//	/fsub_off   disable the join requirement (group admins)
//	/status     show the group's join requirement
//	/stats      show counts (operators)
//	/broadcast  broadcast the replied-to message (operators, private chat)
//
// Broadcast jobs run in the background, outside the dispatcher lanes. Wait
// blocks until they have finished.
package bot
