// Copyright 2025 Lucid Fabrics
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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucid-fabrics/osx-proxmox-next/cli"
	"github.com/lucid-fabrics/osx-proxmox-next/profiles"
)

var (
	profileSaveFlags vmFlags
	profileSaveName  string

	cmdProfile = &cobra.Command{
		Use:   "profile",
		Short: "Manage saved VM configuration profiles",
	}

	cmdProfileSave = &cobra.Command{
		Use:   "save",
		Short: "Save the given VM flags as a named profile",
		RunE:  runProfileSave,
	}

	cmdProfileList = &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		RunE:  runProfileList,
	}

	cmdProfileShow = &cobra.Command{
		Use:   "show <name>",
		Short: "Show one saved profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runProfileShow,
	}
)

func init() {
	profileSaveFlags.register(cmdProfileSave)
	cmdProfileSave.Flags().StringVar(&profileSaveName, "profile-name", "", "Name to save the profile under")
	cobra.CheckErr(cmdProfileSave.MarkFlagRequired("profile-name"))
	cmdProfile.AddCommand(cmdProfileSave, cmdProfileList, cmdProfileShow)
	root.AddCommand(cmdProfile)
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	store, err := profiles.DefaultStore()
	if err != nil {
		return err
	}
	cfg := profileSaveFlags.toConfig()
	if err := store.Save(profileSaveName, *cfg); err != nil {
		return err
	}
	cmd.Printf("Profile %q saved to %s\n", profileSaveName, store.Path)
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	store, err := profiles.DefaultStore()
	if err != nil {
		return err
	}
	names, err := store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	store, err := profiles.DefaultStore()
	if err != nil {
		return err
	}
	cfg, ok, err := store.Get(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit(exitValidation, fmt.Sprintf("no profile named %q", args[0]))
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cmd.Print(string(out))
	return nil
}
