// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/usedbytes/route-bot/base"
	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/drive"
	"github.com/usedbytes/route-bot/interface/command"
	"github.com/usedbytes/route-bot/interface/input"
	"github.com/usedbytes/route-bot/interface/link"
	"github.com/usedbytes/route-bot/model"
	"github.com/usedbytes/route-bot/plan"
	"github.com/usedbytes/route-bot/plan/rc"
	"github.com/usedbytes/route-bot/plan/route"
	"github.com/usedbytes/route-bot/plan/survey"
	"github.com/usedbytes/route-bot/scan"
)

type Pose struct {
	X, Y     float64
	Heading  float64
	Distance float64
}

// Telem serves the odometry over RPC. It is written from the control loop.
type Telem struct {
	lock  sync.Mutex
	Pose  Pose
	State string
}

func (t *Telem) SetPose(odo *model.Odometer, state drive.State) {
	pos, heading := odo.GetPose()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.Pose = Pose{X: pos.X, Y: pos.Y, Heading: heading, Distance: odo.Distance()}
	t.State = state.String()
}

func (t *Telem) GetPose(ignored bool, pose *Pose) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	*pose = t.Pose

	return nil
}

func (t *Telem) GetState(ignored bool, state *string) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	*state = t.State

	return nil
}

func main() {
	cfgPath := flag.String("config", "", "TOML calibration and course file")
	device := flag.String("device", "", "serial device, overriding the config")
	rpcAddr := flag.String("rpc", ":1234", "telemetry RPC listen address, empty to disable")
	gamepad := flag.Bool("gamepad", true, "accept commands from a gamepad")
	flag.Parse()

	log.Println("Route Bot")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if *device != "" {
		cfg.Link.Device = *device
	}

	steps, err := route.Steps(cfg.Course)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telem := Telem{}
	if *rpcAddr != "" {
		rpc.Register(&telem)
		rpc.HandleHTTP()
		l, err := net.Listen("tcp", *rpcAddr)
		if err != nil {
			log.Fatal(err)
		}
		go http.Serve(l, nil)
	}

	platform, err := base.NewPlatform(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer platform.Close()

	lnk, err := link.Open(cfg.Link)
	if err != nil {
		log.Fatal(err)
	}
	defer lnk.Close()

	arb := command.NewArbiter(lnk)
	lnk.SetUrgent(arb.Urgent)
	if err := lnk.Start(ctx); err != nil {
		log.Fatal(err)
	}

	var sticks rc.Sticks
	if *gamepad {
		ip := input.NewCollector()
		ip.SetUrgent(arb.Urgent)
		arb.AddSource(ip)
		sticks = ip
	}

	odo := model.NewOdometer()
	ctrl := drive.NewController(platform, odo, cfg)
	ctrl.SetCommander(arb)
	ctrl.SetReporter(lnk)

	scanner := scan.NewScanner(platform, cfg.Scan, cfg.Roadway)
	ctrl.SetRoadway(scanner)

	ctrl.SetTickHook(func() {
		if arb.TakeStopAnnouncement() {
			platform.PlayChime()
			ctrl.Say("Stop Requested")
		}
		telem.SetPose(odo, ctrl.State())
	})

	seq := route.NewSequencer(ctrl, steps, cfg)
	seq.SetStopFlag(arb)
	seq.SetSurveyor(scanner)

	planner := plan.NewPlanner(arb, ctrl, platform, lnk)
	mustAdd := func(name string, task plan.Task, c command.Command) {
		if err := planner.AddTask(name, task, c); err != nil {
			log.Fatal(err)
		}
	}
	mustAdd(route.TaskName, route.NewTask(seq), command.Start)
	mustAdd(survey.TaskName, survey.NewTask(scanner, ctrl, cfg.Survey), command.Survey)
	mustAdd(rc.TaskName, rc.NewTask(ctrl, arb, sticks), command.Mode)

	if err := planner.SetFallback(rc.TaskName); err != nil {
		log.Fatal(err)
	}
	planner.SetTask(plan.IdleTaskName)

	for !arb.QuitRequested() {
		if err := planner.Tick(ctx); err != nil {
			log.Println(err)
			break
		}
	}

	ctrl.Say("Goodbye")
}
