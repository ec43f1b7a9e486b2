/*
bms-sentinel - Battery monitoring and kill switch control
Copyright (C) 2025, Packwatch

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"errors"
	"fmt"
	"log"

	arg "github.com/alexflint/go-arg"
	"github.com/packwatch/bms-sentinel/sentinelclient"
)

var version = "<not set>"

type subcommand struct {
}

type Args struct {
	Disconnect *subcommand `arg:"subcommand:disconnect" help:"Manually disconnect the battery. It stays disconnected until 'reconnect'."`
	Reconnect  *subcommand `arg:"subcommand:reconnect" help:"Clear a manual disconnect."`
	Status     *subcommand `arg:"subcommand:status" help:"Print the current battery status as JSON."`
}

func (Args) Version() string {
	return version
}

func main() {
	if err := runMain(); err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	log.SetFlags(0)
	args := Args{}
	arg.MustParse(&args)

	switch {
	case args.Disconnect != nil:
		if err := sentinelclient.Disconnect(); err != nil {
			return err
		}
		log.Println("battery disconnected, run 'bms-ctl reconnect' to restore")
		return nil
	case args.Reconnect != nil:
		if err := sentinelclient.Reconnect(); err != nil {
			return err
		}
		log.Println("manual disconnect cleared")
		return nil
	case args.Status != nil:
		status, err := sentinelclient.Status()
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	default:
		return errors.New("no command given, see --help")
	}
}
