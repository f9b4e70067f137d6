// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is prololo's Matrix client.
//
// It speaks the Matrix client-server API directly over net/http — no
// SDK. prololo only needs a handful of endpoints (login, whoami, alias
// resolution, room join, message send), and owning the client keeps
// the dependency surface small and the error handling explicit.
//
// The entry point is Client (unauthenticated transport) from which an
// authenticated Session is obtained via Login or SessionFromToken.
// Message sends use Matrix's idempotent PUT-with-transaction-ID form,
// so a retried send after a network timeout cannot double-post.
package messaging
