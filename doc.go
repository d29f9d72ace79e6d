// SPDX-License-Identifier: MIT
// Copyright (c) 2026 NickHugi
// Source: github.com/nickhugi/aurora

/*
Package aurora reads, writes, and rewrites the Aurora-engine resource
container formats: ERF/MOD/SAV capsules, RIM images, and BIF/BZF archives
with their companion KEY name index. It is designed for tooling workflows
(editors, diff tools, packagers): containers are indexed without loading
payloads, individual resources are fetched by identity with one seek and
read, and a resource nested several capsule levels deep can be edited with
every ancestor capsule rewritten automatically.

# Reading a capsule

Open a capsule and list or read resources. The directory is built from the
header and index tables only; payload bytes are read on demand:

	c, err := aurora.Open("danm13.mod")
	if err != nil {
	    return err
	}
	resources, err := c.Resources(false)
	if err != nil {
	    return err
	}
	for _, fr := range resources {
	    data, _ := fr.Data()
	    // use data
	}

Single lookups return nil for absent resources; absence is never an error:

	data, err := c.Resource("m13aa", aurora.TypeARE, false)
	if err != nil {
	    return err
	}
	if data == nil {
	    // no such resource in this capsule
	}

Bulk lookups share one open file handle:

	results, err := c.Batch([]aurora.ResourceIdentifier{q1, q2}, false)
	if err != nil {
	    return err
	}
	_ = results[q1] // *ResourceResult, or nil when absent

# Mutating a capsule

Add and Remove parse the whole container, mutate it in memory, and rewrite
the file from scratch; the directory is rebuilt before either returns:

	if err := c.Add("newscript", aurora.TypeNCS, compiled); err != nil {
	    return err
	}

# Nested capsules

A resource may live inside a capsule that is itself a resource inside
another capsule, as in save games. SaveNested propagates one edit back
through the whole ancestor chain and overwrites the single physical file:

	err := aurora.SaveNested("saves/000001/save.sav/module.sav/m13aa.are", edited)

Each intermediate capsule must already exist inside its parent; the
resolver fails with ErrUnsavedAncestor rather than fabricating one.

# BIF archives and KEY synchronization

BIF archives index resources by dense numeric id; names live in a shared
KEY file. The two drift in edited installs, so the synchronization APIs
collect discrepancies instead of failing:

	bif, err := aurora.ReadBIFFile("data/templates.bif")
	if err != nil {
	    return err
	}
	key, err := aurora.ReadKEYFile("chitin.key")
	if err != nil {
	    return err
	}
	problems := bif.ValidateWithKey(key, 0)
	bif.SynchronizeWithKey(key, 0)

# Extracting

Extract writes resources as flat name.ext files, with optional include
rules from github.com/woozymasta/pathrules:

	err := c.Extract(ctx, "out/", aurora.ExtractOptions{
	    Include: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.utc"},
	    },
	    MaxWorkers: 4,
	})

The package is synchronous and single-writer: concurrent capsules over the
same path are unsynchronized, and every mutation is a whole-file rewrite.
*/
package aurora
