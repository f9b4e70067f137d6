// Copyright 2026 The Prologin Authors
// SPDX-License-Identifier: Apache-2.0

// Command prololo relays GitHub and Prologin website webhooks into
// Matrix rooms.
//
// It listens for webhook POSTs on /api/webhooks/{source}, verifies
// each request against the source's shared secret, formats the event
// as a chat message, and delivers it to the rooms selected by the
// source's routing rules. Configuration is a single YAML file passed
// via --config.
package main
