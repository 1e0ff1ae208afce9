// Copyright 2026 b2go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil provides shared helpers for b2go tests.

It offers context helpers that register cleanup automatically, a fake API
server that speaks enough of the B2 protocol for client tests (account
authorization plus a per-operation handler table), and small data helpers
for building JSON fixtures.

Usage:

	ctx := testutil.TestContext(t)
	srv := testutil.NewFakeAPI(t)
	srv.Handle("b2_list_buckets", func(w http.ResponseWriter, r *http.Request) { ... })
	client := b2go.New(srv.Credentials(), b2go.WithAuthEndpoint(srv.URL()))
*/
package testutil
