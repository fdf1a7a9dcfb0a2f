// Copyright 2024 The Armored Witness Bootloader authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build !tamago

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/transparency-dev/merkle/rfc6962"
	"github.com/transparency-dev/serverless-log/client"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-witness-bootloader/internal/image"
)

const httpTimeout = 30 * time.Second

// fetchProofBundle retrieves the latest checkpoint from the log at logURL,
// locates the manifest within it and builds its inclusion proof.
func fetchProofBundle(ctx context.Context, logURL string, origin string, v note.Verifier, manifest []byte) (*image.ProofBundle, error) {
	f, err := newFetcher(logURL)
	if err != nil {
		return nil, err
	}

	h := rfc6962.DefaultHasher

	lst, err := client.NewLogStateTracker(ctx, f, h, nil, v, origin, client.UnilateralConsensus(f))
	if err != nil {
		return nil, fmt.Errorf("NewLogStateTracker: %v", err)
	}

	if _, _, _, err := lst.Update(ctx); err != nil {
		return nil, fmt.Errorf("Update: %v", err)
	}

	idx, err := client.LookupIndex(ctx, f, h.HashLeaf(manifest))
	if err != nil {
		return nil, fmt.Errorf("LookupIndex: %v", err)
	}
	klog.Infof("Found manifest at index %d", idx)

	proof, err := lst.ProofBuilder.InclusionProof(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("InclusionProof: %v", err)
	}

	return &image.ProofBundle{
		Checkpoint:     lst.LatestConsistentRaw,
		LogIndex:       idx,
		InclusionProof: proof,
		Manifest:       manifest,
	}, nil
}

// newFetcher creates a Fetcher for the log at the given root location.
func newFetcher(logURL string) (client.Fetcher, error) {
	if !strings.HasSuffix(logURL, "/") {
		logURL += "/"
	}

	root, err := url.Parse(logURL)
	if err != nil {
		return nil, fmt.Errorf("invalid log URL: %v", err)
	}

	get := getByScheme[root.Scheme]
	if get == nil {
		return nil, fmt.Errorf("unsupported URL scheme %s", root.Scheme)
	}

	return func(ctx context.Context, p string) ([]byte, error) {
		u, err := root.Parse(p)
		if err != nil {
			return nil, err
		}
		return get(ctx, u)
	}, nil
}

var getByScheme = map[string]func(context.Context, *url.URL) ([]byte, error){
	"http":  readHTTP,
	"https": readHTTP,
	"file": func(_ context.Context, u *url.URL) ([]byte, error) {
		return os.ReadFile(u.Path)
	},
}

func readHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			klog.Errorf("resp.Body.Close(): %v", err)
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		klog.V(1).Infof("Not found: %q", u.String())
		return nil, os.ErrNotExist
	default:
		return nil, fmt.Errorf("unexpected http status %q", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
