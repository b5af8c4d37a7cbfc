// Package containers starts the Docker dependencies used by watchpost
// integration tests: a MySQL 8 database for the gorm repositories, an
// Eclipse Mosquitto broker for the camera detection feed and an ntfy server
// for shoutrrr push delivery.
//
// Containers are usually shared by a package through TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(ctx, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(ctx)
//	    os.Exit(code)
//	}
//
// Every file in this package carries the "integration" build tag, so the
// tests that use it must as well:
//
//	//go:build integration
//
//nolint:misspell // Mosquitto is the official Eclipse project name
package containers
