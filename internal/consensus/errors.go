package consensus

import "errors"

// ErrUnknownRound names the condition of a CONSENSUS-REPLY whose reply-to
// field names a round that is not (or no longer) pending — a late reply
// after the round already decided, or a reply to a round this node never
// started. HandleConsensusReply drops such replies silently and does not
// return this error.
var ErrUnknownRound = errors.New("consensus: unknown round")
